package chain

import (
	"errors"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// ErrNoCommonAncestor means the two chains share no root. For forks of a
// single genesis this indicates a programming error upstream.
var ErrNoCommonAncestor = errors.New("chains share no common ancestor")

// Step is one move of a reorganization path: disconnect or connect a single
// block.
type Step struct {
	Direction model.Direction
	Header    *model.ChainedHeader
}

// Navigate plans the path from the current chain's tip to the target chain's
// tip via their lowest common ancestor: disconnects from the current tip down
// to the ancestor (exclusive), then connects up to the target tip (exclusive
// of the ancestor). A nil current chain yields connects for the entire
// target.
func Navigate(current, target *model.Chain) ([]Step, error) {
	if current == nil {
		steps := make([]Step, 0, target.Len())
		for h := int32(0); h <= target.Height(); h++ {
			header, _ := target.AtHeight(h)
			steps = append(steps, Step{Direction: model.DirectionConnect, Header: header})
		}
		return steps, nil
	}

	ancestor := int32(-1)
	for h := minHeight(current.Height(), target.Height()); h >= 0; h-- {
		a, _ := current.AtHeight(h)
		b, _ := target.AtHeight(h)
		if a.Hash() == b.Hash() {
			ancestor = h
			break
		}
	}
	if ancestor < 0 {
		return nil, ErrNoCommonAncestor
	}

	steps := make([]Step, 0, int(current.Height()-ancestor)+int(target.Height()-ancestor))
	for h := current.Height(); h > ancestor; h-- {
		header, _ := current.AtHeight(h)
		steps = append(steps, Step{Direction: model.DirectionDisconnect, Header: header})
	}
	for h := ancestor + 1; h <= target.Height(); h++ {
		header, _ := target.AtHeight(h)
		steps = append(steps, Step{Direction: model.DirectionConnect, Header: header})
	}
	return steps, nil
}

func minHeight(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
