package scene

import (
	"github.com/tidwall/gjson"
)

// semanticsCandidate is a label-matched semantics node resolved to an
// absolute-coordinate centre point.
type semanticsCandidate struct {
	label   string
	centerX int
	centerY int
	bounds  string
}

// findSubtreeRoot walks the tree depth-first looking for a node whose
// "label" field exactly equals within, returning the whole tree when
// within is empty. Semantics/widget trees have no fixed schema upstream
// (spec §9); this module assumes the conventional Flutter debug shape:
// each node optionally carries "label" and "rect" ({left,top,right,bottom})
// fields and a "children" array.
func findSubtreeRoot(raw []byte, within string) (gjson.Result, bool) {
	root := gjson.ParseBytes(raw)
	if within == "" {
		return root, true
	}

	var found gjson.Result
	var ok bool
	var walk func(node gjson.Result)
	walk = func(node gjson.Result) {
		if ok {
			return
		}
		if node.Get("label").String() == within {
			found, ok = node, true
			return
		}
		for _, child := range node.Get("children").Array() {
			walk(child)
			if ok {
				return
			}
		}
	}
	walk(root)
	return found, ok
}

// collectCandidates walks root depth-first collecting every node whose
// label satisfies matches and which carries rect geometry.
func collectCandidates(root gjson.Result, matches func(label string) bool) []semanticsCandidate {
	var out []semanticsCandidate
	var walk func(node gjson.Result)
	walk = func(node gjson.Result) {
		label := node.Get("label").String()
		if label != "" && matches(label) {
			if rect := node.Get("rect"); rect.Exists() {
				left := rect.Get("left").Float()
				top := rect.Get("top").Float()
				right := rect.Get("right").Float()
				bottom := rect.Get("bottom").Float()
				out = append(out, semanticsCandidate{
					label:   label,
					centerX: int((left + right) / 2),
					centerY: int((top + bottom) / 2),
					bounds:  rect.Raw,
				})
			}
		}
		for _, child := range node.Get("children").Array() {
			walk(child)
		}
	}
	walk(root)
	return out
}

// filterOnScreen drops candidates whose centre point falls outside
// [0,width] x [0,height].
func filterOnScreen(candidates []semanticsCandidate, width, height int) []semanticsCandidate {
	var out []semanticsCandidate
	for _, c := range candidates {
		if c.centerX >= 0 && c.centerX <= width && c.centerY >= 0 && c.centerY <= height {
			out = append(out, c)
		}
	}
	return out
}
