package pipeline

// FindDuplicates groups stored records by perceptual hash and returns every
// group of size two or more, ordered by first appearance. Advisory only: no
// record is mutated or deleted.
func FindDuplicates(store Store) ([][]int64, error) {
	hashes, err := store.AllHashes()
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]int64)
	var order []string
	for _, ih := range hashes {
		if ih.Hash == "" {
			continue
		}
		if _, seen := groups[ih.Hash]; !seen {
			order = append(order, ih.Hash)
		}
		groups[ih.Hash] = append(groups[ih.Hash], ih.ID)
	}

	var duplicates [][]int64
	for _, h := range order {
		if ids := groups[h]; len(ids) >= 2 {
			duplicates = append(duplicates, ids)
		}
	}
	return duplicates, nil
}
