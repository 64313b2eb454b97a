package app

const (
	Name           = "zwavelink"
	SourceURL      = "https://git.skobk.in/skobkin/zwavelink"
	ConfigFilename = "config.json"
	DBFilename     = "zwavelink.db"
	LogFilename    = "zwavelink.log"
)
