package vm

import "github.com/tliron/commonlog"

var (
	vmLog       = commonlog.GetLogger("skein.vm")
	schedLog    = commonlog.GetLogger("skein.scheduler")
	gcLog       = commonlog.GetLogger("skein.gc")
	registryLog = commonlog.GetLogger("skein.registry")
)
