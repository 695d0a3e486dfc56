package classifier

import (
	"math/rand"
	"sort"
)

// Node 决策树节点；Feature < 0 表示叶子
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Proba     []float64 `json:"proba,omitempty"`
}

// Tree 以扁平数组存储的 CART 树，根节点下标为 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// predictProba 返回叶子节点上的类别概率
func (t *Tree) predictProba(x []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Proba
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder 单棵树的构建状态（加权 Gini）
type treeBuilder struct {
	X           [][]float64
	y           []int     // 类别下标 0..k-1
	classWeight []float64 // 按类别下标
	k           int
	maxFeatures int
	params      Params
	rng         *rand.Rand
	nodes       []Node
}

func (b *treeBuilder) build(idx []int) *Tree {
	b.nodes = b.nodes[:0]
	b.grow(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	dist := b.distribution(idx)
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1})

	if b.shouldStop(idx, depth, dist) {
		b.nodes[id].Proba = normalize(dist)
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, dist)
	if !ok {
		b.nodes[id].Proba = normalize(dist)
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) shouldStop(idx []int, depth int, dist []float64) bool {
	p := b.params
	if p.MaxDepth > 0 && depth >= p.MaxDepth {
		return true
	}
	if len(idx) < p.MinSamplesSplit || len(idx) < 2*p.MinSamplesLeaf {
		return true
	}
	nonZero := 0
	for _, w := range dist {
		if w > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func (b *treeBuilder) distribution(idx []int) []float64 {
	dist := make([]float64, b.k)
	for _, i := range idx {
		dist[b.y[i]] += b.classWeight[b.y[i]]
	}
	return dist
}

// bestSplit 在随机抽取的 maxFeatures 个特征中寻找加权 Gini 最小的切分
func (b *treeBuilder) bestSplit(idx []int, parent []float64) (int, float64, bool) {
	total := sum(parent)
	bestImpurity := gini(parent, total)
	bestFeature, bestThreshold, found := -1, 0.0, false

	n := len(idx)
	sorted := make([]int, n)
	leftDist := make([]float64, b.k)
	rightDist := make([]float64, b.k)
	minLeaf := b.params.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	candidates := b.rng.Perm(len(b.X[0]))[:b.maxFeatures]
	for _, f := range candidates {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		for c := range leftDist {
			leftDist[c] = 0
		}
		copy(rightDist, parent)
		var leftW float64

		for pos := 0; pos < n-1; pos++ {
			cls := b.y[sorted[pos]]
			w := b.classWeight[cls]
			leftDist[cls] += w
			rightDist[cls] -= w
			leftW += w

			cur, next := b.X[sorted[pos]][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			nl := pos + 1
			if nl < minLeaf || n-nl < minLeaf {
				continue
			}

			rightW := total - leftW
			impurity := (leftW*gini(leftDist, leftW) + rightW*gini(rightDist, rightW)) / total
			if !found || impurity < bestImpurity-1e-12 {
				threshold := cur + (next-cur)/2
				if threshold >= next {
					threshold = cur
				}
				bestImpurity, bestFeature, bestThreshold, found = impurity, f, threshold, true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, w := range dist {
		p := w / total
		g -= p * p
	}
	return g
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func normalize(dist []float64) []float64 {
	total := sum(dist)
	out := make([]float64, len(dist))
	if total <= 0 {
		return out
	}
	for i, w := range dist {
		out[i] = w / total
	}
	return out
}
