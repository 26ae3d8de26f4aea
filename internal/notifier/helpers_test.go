package notifier

import logx "htbot/pkg/logx"

func logxNop() logx.Logger { return logx.Nop() }
