package analyzer

// Deduper 最近消息 ID 的有界集合：环形缓冲记录插入顺序，map 判重，满时淘汰最早的 ID
// 非并发安全，由 Analyzer 的互斥锁保护
type Deduper struct {
	ring []string
	next int
	size int
	seen map[string]struct{}
}

// NewDeduper 创建容量为 capacity 的去重集合
func NewDeduper(capacity int) *Deduper {
	if capacity < 1 {
		capacity = 1
	}
	return &Deduper{
		ring: make([]string, capacity),
		seen: make(map[string]struct{}, capacity),
	}
}

// Seen 已见过返回 true；否则记录并返回 false
func (d *Deduper) Seen(key string) bool {
	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.size == len(d.ring) {
		delete(d.seen, d.ring[d.next])
	} else {
		d.size++
	}
	d.ring[d.next] = key
	d.seen[key] = struct{}{}
	d.next = (d.next + 1) % len(d.ring)
	return false
}

// Len 当前记录数
func (d *Deduper) Len() int {
	return d.size
}
