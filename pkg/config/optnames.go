package config

const (
	OptConcurrency        = "concurrency"
	OptConnTimeout        = "connect-timeout"
	OptBufferSize         = "buffer-size"
	OptExtract            = "extract"
	OptForce              = "force"
	OptForceHTTP2         = "force-http2"
	OptLoggingLevel       = "log-level"
	OptMaxConnPerHost     = "max-conn-per-host"
	OptMaxConcurrentFiles = "max-concurrent-files"
	OptOutputConsumer     = "output"
	OptPIDFile            = "pid-file"
	OptProgress           = "progress"
	OptResolve            = "resolve"
	OptRetries            = "retries"
	OptSplitThreshold     = "split-threshold"
	OptVerbose            = "verbose"
)
