package status

import (
	"sync"

	"github.com/EasyTier/EasyLink/pkg/types"
)

// Block 实例共享状态块
type Block struct {
	eventsMu sync.RWMutex
	events   *EventLog

	nodeMu sync.RWMutex
	node   types.NodeInfo

	routesMu sync.RWMutex
	routes   []types.Route

	peersMu sync.RWMutex
	peers   []types.PeerInfo

	errMu sync.RWMutex
	err   *string
}

// NewBlock 创建状态块，eventCapacity <= 0 时使用 DefaultCapacity
func NewBlock(eventCapacity int) *Block {
	return &Block{
		events: NewEventLog(eventCapacity),
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              写入
// ════════════════════════════════════════════════════════════════════════════

// AppendEvent 追加事件，满时淘汰最旧的一条
func (b *Block) AppendEvent(e types.Event) {
	b.eventsMu.Lock()
	b.events.Append(e)
	b.eventsMu.Unlock()
}

// SetNode 整体替换节点信息
func (b *Block) SetNode(n types.NodeInfo) {
	n = n.Clone()
	b.nodeMu.Lock()
	b.node = n
	b.nodeMu.Unlock()
}

// SetRoutes 整体替换路由表
func (b *Block) SetRoutes(routes []types.Route) {
	routes = types.CloneRoutes(routes)
	b.routesMu.Lock()
	b.routes = routes
	b.routesMu.Unlock()
}

// SetPeers 整体替换对等节点列表
func (b *Block) SetPeers(peers []types.PeerInfo) {
	peers = types.ClonePeers(peers)
	b.peersMu.Lock()
	b.peers = peers
	b.peersMu.Unlock()
}

// SetError 记录错误信息
func (b *Block) SetError(msg string) {
	b.errMu.Lock()
	b.err = &msg
	b.errMu.Unlock()
}

// ════════════════════════════════════════════════════════════════════════════
//                              读取（均返回副本）
// ════════════════════════════════════════════════════════════════════════════

// Events 按从旧到新的顺序返回事件
func (b *Block) Events() []types.Event {
	b.eventsMu.RLock()
	defer b.eventsMu.RUnlock()
	return b.events.Snapshot()
}

// Node 返回节点信息
func (b *Block) Node() types.NodeInfo {
	b.nodeMu.RLock()
	defer b.nodeMu.RUnlock()
	return b.node.Clone()
}

// Routes 返回路由表
func (b *Block) Routes() []types.Route {
	b.routesMu.RLock()
	defer b.routesMu.RUnlock()
	return types.CloneRoutes(b.routes)
}

// Peers 返回对等节点列表
func (b *Block) Peers() []types.PeerInfo {
	b.peersMu.RLock()
	defer b.peersMu.RUnlock()
	return types.ClonePeers(b.peers)
}

// Error 返回错误信息
func (b *Block) Error() (string, bool) {
	b.errMu.RLock()
	defer b.errMu.RUnlock()
	if b.err == nil {
		return "", false
	}
	return *b.err, true
}
