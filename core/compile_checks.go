package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Transport            = TransportFunc(nil)
	_ Notifier             = NotifierFunc(nil)
	_ SessionExpiryHandler = SessionExpiryFunc(nil)
	_ LocaleSource         = StaticLocale("")
	_ ConfigProvider       = (*CfgxConfigProvider)(nil)
	_ OptionsResolver      = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
