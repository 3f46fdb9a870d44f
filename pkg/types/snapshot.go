package types

// InstanceSnapshot 某一时刻实例状态的副本
//
// 这是推送给展示层的线格式。各字段分别读取自状态块，
// 节点信息与事件列表可能来自相邻的两次刷新周期。
type InstanceSnapshot struct {
	ID             string          `json:"id"`
	Node           NodeInfo        `json:"node"`
	Events         []Event         `json:"events"`
	Routes         []Route         `json:"routes"`
	Peers          []PeerInfo      `json:"peers"`
	PeerRoutePairs []PeerRoutePair `json:"peer_route_pairs"`
	Running        bool            `json:"running"`
	State          LauncherState   `json:"state"`
	Error          *string         `json:"error,omitempty"`
}

// ErrorMessage 返回错误信息，无错误时为空串
func (s InstanceSnapshot) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}
