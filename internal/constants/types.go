package constants

// Backend type aliases.
const (
	BackendShell      = "shell"
	BackendHypervisor = "hypervisor"
	BackendSearch     = "search"
)

// Hypervisor actions.
const (
	VMActionList  = "list"
	VMActionStart = "start"
	VMActionStop  = "stop"
)

// Hypervisor kinds.
const (
	HypervisorVirtualBox = "virtualbox"
	HypervisorVMware     = "vmware"
)

// Argument types understood by the validator.
const (
	ArgString  = "string"
	ArgPath    = "path"
	ArgInteger = "integer"
	ArgNumber  = "number"
	ArgBoolean = "boolean"
)

// Interpreter providers.
const (
	ProviderRules  = "rules"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Recorder store types.
const (
	RecorderMemory   = "memory"
	RecorderBadger   = "badger"
	RecorderPostgres = "postgres"
	RecorderRedis    = "redis"
)

// DefaultSession is used when a front end does not name its session.
const DefaultSession = "default"
