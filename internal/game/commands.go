package game

// cmdKind discriminates the commands on a room's writer queue.
type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdStart
	cmdOwnerStart
	cmdSyncAck
	cmdSubmitAnswer
	cmdChat
	cmdHostEnd
	cmdConnected
	cmdDisconnected
	cmdTick
)

// tickKind discriminates timer callbacks. Each tick carries enough
// context for the writer to recognise and discard stale firings.
type tickKind int

const (
	tickSyncWatchdog tickKind = iota
	tickGameTimer
	tickAllLeft
	tickReconnectGrace
	tickDrain
)

// command is one unit of work for the room writer. reply, when non-nil,
// receives exactly one reply.
type command struct {
	kind  cmdKind
	pid   string
	join  *JoinInput
	round int
	text  string
	tick  tickKind
	reply chan reply
}

type reply struct {
	val any
	err error
}

func (c *command) respond(val any, err error) {
	if c.reply != nil {
		c.reply <- reply{val: val, err: err}
	}
}
