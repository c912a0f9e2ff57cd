package executor

// Argument names read by the executor kinds.
const (
	ArgEngineOpts      = "engineopts"
	ArgSkipEvents      = "skipEvents"
	ArgMaxEvents       = "maxEvents"
	ArgIgnoreErrors    = "ignoreErrors"
	ArgIgnoreFiles     = "ignoreFiles"
	ArgIgnorePatterns  = "ignorePatterns"
	ArgEnvSetup        = "envSetup"
	ArgBundle          = "bundle"
	ArgEnv             = "env"
	ArgDropAndReload   = "dropAndReload"
	ArgValgrind        = "valgrind"
	ArgValgrindOpts    = "valgrindOpts"
	ArgVTune           = "vtune"
	ArgVTuneOpts       = "vtuneOpts"
	ArgMergeTargetSize = "mergeTargetSize"
	ArgReductionConf   = "reductionConf"
	ArgCheckOutputs    = "checkOutputs"
	ArgLogfile         = "logfile"
	ArgScanFormat      = "scanFormat"
	ArgCompression     = "compressionType"
	ArgResourceMonitor = "resourceMonitor"
)

// DatasetKeyedArgs are arguments whose map values are keyed by dataset type
// rather than by stage.
var DatasetKeyedArgs = map[string]bool{
	ArgMergeTargetSize: true,
}
