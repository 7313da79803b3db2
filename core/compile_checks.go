package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ RefreshLocker   = (*MemoryRefreshLocker)(nil)
	_ OAuthStateStore = (*MemoryOAuthStateStore)(nil)
	_ MetricsRecorder = (*NopMetricsRecorder)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
