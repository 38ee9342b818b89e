package app

// Option configures how Run starts an App
type Option func(o *opts)

type opts struct {
	defaultAppName string
}

// WithDefaultAppName is used when app_name is not configured
func WithDefaultAppName(name string) Option {
	return func(o *opts) {
		o.defaultAppName = name
	}
}

func (o *opts) apply(config *BaseConfig) {
	if len(config.AppName) == 0 {
		config.AppName = o.defaultAppName
	}
	if config.AppConfig == nil {
		config.AppConfig = make(Config)
	}
}
