package scanner

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[DecodeMessage]       = (*DecodeCommand)(nil)
	_ gocmd.Commander[ScanAgainMessage]    = (*ScanAgainCommand)(nil)
	_ gocmd.Commander[ToggleFacingMessage] = (*ToggleFacingCommand)(nil)
	_ gocmd.Commander[RefreshMessage]      = (*RefreshCommand)(nil)
	_ gocmd.Querier[StateMessage, View]    = (*StateQuery)(nil)
)
