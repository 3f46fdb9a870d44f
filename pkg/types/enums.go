package types

import "fmt"

// ============================================================================
//                              NATType - NAT 类型
// ============================================================================

// NATType NAT 类型
type NATType int

const (
	// NATTypeUnknown 未知类型
	NATTypeUnknown NATType = iota
	// NATTypeOpenInternet 无 NAT（公网）
	NATTypeOpenInternet
	// NATTypeNoPAT 有 NAT 但不做端口转换
	NATTypeNoPAT
	// NATTypeFullCone 完全锥形 NAT
	NATTypeFullCone
	// NATTypeRestricted 受限锥形 NAT
	NATTypeRestricted
	// NATTypePortRestricted 端口受限锥形 NAT
	NATTypePortRestricted
	// NATTypeSymmetric 对称型 NAT
	NATTypeSymmetric
	// NATTypeSymUDPFirewall 对称 UDP 防火墙
	NATTypeSymUDPFirewall
)

// String 返回 NAT 类型的字符串表示
func (n NATType) String() string {
	switch n {
	case NATTypeOpenInternet:
		return "open_internet"
	case NATTypeNoPAT:
		return "no_pat"
	case NATTypeFullCone:
		return "full_cone"
	case NATTypeRestricted:
		return "restricted"
	case NATTypePortRestricted:
		return "port_restricted"
	case NATTypeSymmetric:
		return "symmetric"
	case NATTypeSymUDPFirewall:
		return "sym_udp_firewall"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              LauncherState - 实例状态
// ============================================================================

// LauncherState Launcher 状态机
//
//	NotStarted ──Start──▶ Running ──stop──▶ Stopped
//	                         └────engine error──▶ Errored
//
// Stopped 与 Errored 是终态，同一个 Launcher 不会重新启动。
type LauncherState int32

const (
	// StateNotStarted 尚未启动（或配置失败）
	StateNotStarted LauncherState = iota
	// StateRunning 后台执行上下文存活
	StateRunning
	// StateStopped 显式停止或引擎正常结束
	StateStopped
	// StateErrored 引擎任务返回错误
	StateErrored
)

// String 返回状态的字符串表示
func (s LauncherState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal 是否为终态
func (s LauncherState) Terminal() bool {
	return s == StateStopped || s == StateErrored
}

// MarshalText 实现 encoding.TextMarshaler
func (s LauncherState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *LauncherState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "not_started":
		*s = StateNotStarted
	case "running":
		*s = StateRunning
	case "stopped":
		*s = StateStopped
	case "errored":
		*s = StateErrored
	default:
		return fmt.Errorf("unknown launcher state %q", string(text))
	}
	return nil
}

// ============================================================================
//                              EventKind - 引擎事件类型
// ============================================================================

// EventKind 引擎生命周期事件类型
type EventKind string

const (
	EventTunDeviceReady           EventKind = "tun_device_ready"
	EventTunDeviceError           EventKind = "tun_device_error"
	EventListenerAdded            EventKind = "listener_added"
	EventListenerAddFailed        EventKind = "listener_add_failed"
	EventConnectionAccepted       EventKind = "connection_accepted"
	EventConnectionError          EventKind = "connection_error"
	EventConnecting               EventKind = "connecting"
	EventConnected                EventKind = "connected"
	EventConnectError             EventKind = "connect_error"
	EventPeerAdded                EventKind = "peer_added"
	EventPeerRemoved              EventKind = "peer_removed"
	EventVPNPortalClientConnected EventKind = "vpn_portal_client_connected"
	EventError                    EventKind = "error"
)
