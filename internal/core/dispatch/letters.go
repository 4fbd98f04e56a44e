package dispatch

import (
	"sort"
	"sync"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// maxLetters 每类手柄字母的数量（本地手柄与中继槽位各 16 个）
const maxLetters = 16

// localLetter 本地手柄 i 在上游使用的字母
func localLetter(throttle int) byte { return 'A' + byte(throttle) }

// relayLetter 中继槽位 s 在上游使用的字母
func relayLetter(slot int) byte { return 'a' + byte(slot) }

// letterOwner 解析上游回显中的字母
func letterOwner(letter byte) types.Source {
	switch {
	case letter >= 'A' && letter < 'A'+maxLetters:
		return types.Source{Kind: types.SourceLocal, Slot: int(letter - 'A')}
	case letter >= 'a' && letter < 'a'+maxLetters:
		return types.RelaySource(int(letter - 'a'))
	}
	return types.Source{Kind: types.SourceUpstream, Slot: types.NoSlot}
}

// clientBinding 中继客户端以哪个字母占用机车
type clientBinding struct {
	slot   int
	letter byte
}

// letterBook 手柄字母簿
//
// upstream 记录上游 WiThrottle 会话中机车挂在哪个字母下，会话结束即清空；
// clients 记录中继客户端的占用，跨上游会话保留。
type letterBook struct {
	mu       sync.Mutex
	upstream map[uint16]byte
	clients  map[uint16]clientBinding
}

func newLetterBook() *letterBook {
	return &letterBook{
		upstream: make(map[uint16]byte),
		clients:  make(map[uint16]clientBinding),
	}
}

func (b *letterBook) reset() {
	b.mu.Lock()
	b.upstream = make(map[uint16]byte)
	b.mu.Unlock()
}

func (b *letterBook) upstreamLetter(id uint16) (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.upstream[id]
	return l, ok
}

func (b *letterBook) setUpstream(id uint16, letter byte) {
	b.mu.Lock()
	b.upstream[id] = letter
	b.mu.Unlock()
}

func (b *letterBook) dropUpstream(id uint16) {
	b.mu.Lock()
	delete(b.upstream, id)
	b.mu.Unlock()
}

// upstreamIDs 返回挂在 letter 下的机车（有序）
func (b *letterBook) upstreamIDs(letter byte) []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint16
	for id, l := range b.upstream {
		if l == letter {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// upstreamAll 返回全部上游占用的副本
func (b *letterBook) upstreamAll() map[uint16]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint16]byte, len(b.upstream))
	for id, l := range b.upstream {
		out[id] = l
	}
	return out
}

func (b *letterBook) client(id uint16) (clientBinding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[id]
	return c, ok
}

func (b *letterBook) bindClient(id uint16, slot int, letter byte) {
	b.mu.Lock()
	b.clients[id] = clientBinding{slot: slot, letter: letter}
	b.mu.Unlock()
}

// unbindClient 仅当机车仍属于 slot 时解除
func (b *letterBook) unbindClient(id uint16, slot int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[id]; ok && c.slot == slot {
		delete(b.clients, id)
		return true
	}
	return false
}

// dropSlot 解除槽位的全部占用
func (b *letterBook) dropSlot(slot int) []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint16
	for id, c := range b.clients {
		if c.slot == slot {
			delete(b.clients, id)
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
