package netgraph

// Cookie identifies the control-message ABI a given typed message
// belongs to.  The PPPoE node type uses NGM_PPPOE_COOKIE for every
// message it accepts; messages bearing any other cookie are rejected
// by the phys package's Router before any link lookup.
const PPPoECookie uint32 = 0xdebd3c93

// Control message commands understood by the kernel PPPoE node, per
// <netgraph/ng_pppoe.h>.
const (
	CmdPPPoEConnect   uint32 = 1
	CmdPPPoEListen    uint32 = 2
	CmdPPPoEOffer     uint32 = 3
	CmdPPPoEService   uint32 = 4
	CmdPPPoESuccess   uint32 = 5
	CmdPPPoEFail      uint32 = 6
	CmdPPPoEClose     uint32 = 7
	CmdPPPoESetMaxP   uint32 = 8
	CmdPPPoEACName    uint32 = 9
	CmdPPPoESessionID uint32 = 10
	CmdPPPoEHURL      uint32 = 11
	CmdPPPoEMOTM      uint32 = 12
)

// Generic netgraph control socket messages, per <netgraph/ng_message.h>.
const (
	GenericCookie uint32 = 851672
	CmdMkPeer     uint32 = 1
	CmdConnect    uint32 = 2
	CmdName       uint32 = 3
	CmdRmHook     uint32 = 4
	CmdNodeInfo   uint32 = 5
	CmdListHooks  uint32 = 6
	CmdListNodes  uint32 = 7
	CmdListTypes  uint32 = 8
	CmdShutdown   uint32 = 9
)

// NodeTypeEther and NodeTypePPPoE are the kernel node type names used
// for orphan-hook discovery and PPPoE peer creation.
const (
	NodeTypeEther = "ether"
	NodeTypePPPoE = "pppoe"
	NodeTypeTee   = "tee"
)

// Well-known hook names on an ether(4) node and a tee(4) node.
const (
	HookOrphans     = "orphans"
	HookDivert      = "divert"
	HookTeeLeft     = "left"
	HookTeeRight    = "right"
	HookTeeLeft2Rgt = "left2right"
	HookTeeRgt2Left = "right2left"
)
