package zookeeper

//nolint:gochecknoglobals
var (
	WaitForSession   = waitForSession
	ValidateRootPath = validateRootPath
)
