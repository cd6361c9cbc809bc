// Package boxmatch associates bounding boxes across consecutive frames by
// counting the keypoint correspondences that connect them.
package boxmatch

import (
	"fmt"
	"sort"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/monitoring"
)

// Table is the vote matrix between previous (rows) and current (columns)
// boxes. Rows and columns are ordered by ascending box ID, so IDs need not be
// dense or zero-based.
type Table struct {
	PrevIDs []int
	CurrIDs []int
	Votes   [][]int
}

// Count returns the votes between two box IDs, or 0 for unknown IDs.
func (t *Table) Count(prevID, currID int) int {
	r := sort.SearchInts(t.PrevIDs, prevID)
	c := sort.SearchInts(t.CurrIDs, currID)
	if r == len(t.PrevIDs) || t.PrevIDs[r] != prevID || c == len(t.CurrIDs) || t.CurrIDs[c] != currID {
		return 0
	}
	return t.Votes[r][c]
}

// Result is the best current box for every previous box.
type Result struct {
	Matches map[int]fusion.BoxMatch // keyed by previous box ID
	Table   *Table
}

// Sorted returns all matches ordered by previous box ID.
func (r Result) Sorted() []fusion.BoxMatch {
	out := make([]fusion.BoxMatch, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrevID < out[j].PrevID })
	return out
}

// Confident returns the matches not flagged low confidence, ordered by
// previous box ID.
func (r Result) Confident() []fusion.BoxMatch {
	all := r.Sorted()
	out := all[:0]
	for _, m := range all {
		if !m.LowConfidence {
			out = append(out, m)
		}
	}
	return out
}

// BuildTable counts, for every correspondence, each (previous box, current
// box) pair whose ROIs contain the previous and current keypoint.
func BuildTable(matches []fusion.Correspondence, prev, curr *fusion.Frame) (*Table, error) {
	prevIDs, err := sortedIDs(prev.BoundingBoxes)
	if err != nil {
		return nil, fmt.Errorf("previous frame: %w", err)
	}
	currIDs, err := sortedIDs(curr.BoundingBoxes)
	if err != nil {
		return nil, fmt.Errorf("current frame: %w", err)
	}

	prevBoxes := boxesByIndex(prev.BoundingBoxes, prevIDs)
	currBoxes := boxesByIndex(curr.BoundingBoxes, currIDs)

	t := &Table{PrevIDs: prevIDs, CurrIDs: currIDs, Votes: make([][]int, len(prevIDs))}
	for i := range t.Votes {
		t.Votes[i] = make([]int, len(currIDs))
	}

	var rows, cols []int
	for _, m := range matches {
		prevKpt, err := fusion.KeypointAt(prev.Keypoints, m.QueryIdx)
		if err != nil {
			return nil, fmt.Errorf("previous keypoint: %w", err)
		}
		currKpt, err := fusion.KeypointAt(curr.Keypoints, m.TrainIdx)
		if err != nil {
			return nil, fmt.Errorf("current keypoint: %w", err)
		}

		rows = rows[:0]
		for r, b := range prevBoxes {
			if b.ROI.Contains(prevKpt.Pt) {
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			continue
		}
		cols = cols[:0]
		for c, b := range currBoxes {
			if b.ROI.Contains(currKpt.Pt) {
				cols = append(cols, c)
			}
		}
		for _, r := range rows {
			for _, c := range cols {
				t.Votes[r][c]++
			}
		}
	}
	return t, nil
}

// Match returns, for every previous box, the current box with the most
// votes. Ties go to the lowest current box ID. A row whose best count is
// below max(minVotes, 1) is still reported but flagged LowConfidence. When
// the current frame has no boxes the result is empty.
func Match(matches []fusion.Correspondence, prev, curr *fusion.Frame, minVotes int) (Result, error) {
	t, err := BuildTable(matches, prev, curr)
	if err != nil {
		return Result{}, err
	}
	if minVotes < 1 {
		minVotes = 1
	}

	res := Result{Matches: make(map[int]fusion.BoxMatch, len(t.PrevIDs)), Table: t}
	if len(t.CurrIDs) == 0 {
		return res, nil
	}
	for r, row := range t.Votes {
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		m := fusion.BoxMatch{
			PrevID:        t.PrevIDs[r],
			CurrID:        t.CurrIDs[best],
			Votes:         row[best],
			LowConfidence: row[best] < minVotes,
		}
		res.Matches[m.PrevID] = m
		monitoring.Debugf("[boxmatch] prev=%d -> curr=%d votes=%d low_confidence=%t", m.PrevID, m.CurrID, m.Votes, m.LowConfidence)
	}
	return res, nil
}

func sortedIDs(boxes []fusion.BoundingBox) ([]int, error) {
	ids := make([]int, len(boxes))
	for i, b := range boxes {
		ids[i] = b.ID
	}
	sort.Ints(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, fmt.Errorf("%w: %d", fusion.ErrDuplicateBoxID, ids[i])
		}
	}
	return ids, nil
}

// boxesByIndex reorders boxes to follow ids.
func boxesByIndex(boxes []fusion.BoundingBox, ids []int) []*fusion.BoundingBox {
	pos := make(map[int]int, len(boxes))
	for i := range boxes {
		pos[boxes[i].ID] = i
	}
	out := make([]*fusion.BoundingBox, len(ids))
	for i, id := range ids {
		out[i] = &boxes[pos[id]]
	}
	return out
}
