package sprite

import "sort"

// Block is an image to place on the sheet.
type Block struct {
	Name string
	W, H int
	// X and Y are set by Pack.
	X, Y int
}

// node is a rectangle of the sheet. A used node is split into the space to
// its right and the space below it.
type node struct {
	x, y, w, h  int
	used        bool
	right, down *node
}

// Pack places blocks on a sheet with a binary-tree packer that grows the
// sheet to the right or downwards, whichever keeps it closer to square.
// Blocks are placed largest side first. Pack returns the sheet size.
func Pack(blocks []*Block, padding int) (width, height int) {
	if len(blocks) == 0 {
		return 0, 0
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		mi, mj := max(blocks[i].W, blocks[i].H), max(blocks[j].W, blocks[j].H)
		if mi != mj {
			return mi > mj
		}
		return blocks[i].Name < blocks[j].Name
	})

	p := &packer{root: &node{w: blocks[0].W + padding, h: blocks[0].H + padding}}
	for _, b := range blocks {
		w, h := b.W+padding, b.H+padding
		n := p.find(p.root, w, h)
		if n != nil {
			n = split(n, w, h)
		} else {
			n = p.grow(w, h)
		}
		b.X, b.Y = n.x, n.y
	}

	for _, b := range blocks {
		width = max(width, b.X+b.W)
		height = max(height, b.Y+b.H)
	}
	return width, height
}

type packer struct {
	root *node
}

func (p *packer) find(n *node, w, h int) *node {
	if n == nil {
		return nil
	}
	if n.used {
		if r := p.find(n.right, w, h); r != nil {
			return r
		}
		return p.find(n.down, w, h)
	}
	if w <= n.w && h <= n.h {
		return n
	}
	return nil
}

func split(n *node, w, h int) *node {
	n.used = true
	n.down = &node{x: n.x, y: n.y + h, w: n.w, h: n.h - h}
	n.right = &node{x: n.x + w, y: n.y, w: n.w - w, h: h}
	return n
}

func (p *packer) grow(w, h int) *node {
	canGrowDown := w <= p.root.w
	canGrowRight := h <= p.root.h

	shouldGrowRight := canGrowRight && p.root.h >= p.root.w+w
	shouldGrowDown := canGrowDown && p.root.w >= p.root.h+h

	switch {
	case shouldGrowRight:
		return p.growRight(w, h)
	case shouldGrowDown:
		return p.growDown(w, h)
	case canGrowRight:
		return p.growRight(w, h)
	default:
		// Blocks are sorted by largest side, so one of the two always fits.
		return p.growDown(w, h)
	}
}

func (p *packer) growRight(w, h int) *node {
	old := p.root
	p.root = &node{
		used:  true,
		w:     old.w + w,
		h:     old.h,
		down:  old,
		right: &node{x: old.w, y: 0, w: w, h: old.h},
	}
	return split(p.find(p.root, w, h), w, h)
}

func (p *packer) growDown(w, h int) *node {
	old := p.root
	p.root = &node{
		used:  true,
		w:     old.w,
		h:     old.h + h,
		down:  &node{x: 0, y: old.h, w: old.w, h: h},
		right: old,
	}
	return split(p.find(p.root, w, h), w, h)
}
