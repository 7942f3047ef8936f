package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeFunc receives the reloaded configuration, or the error that
// prevented it from loading. On error the previous configuration should stay
// in effect.
type ChangeFunc func(ev fsnotify.Event, cfg *Config, err error)

// Watch starts watching the config file viper was loaded from and calls
// onChange after every write. viper must have read a config file first.
func Watch(onChange ChangeFunc) {
	WatchViper(viper.GetViper(), onChange)
}

// WatchViper is Watch for an explicit viper instance.
func WatchViper(v *viper.Viper, onChange ChangeFunc) {
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		cfg, err := LoadFrom(v)
		onChange(ev, cfg, err)
	})
	v.WatchConfig()
}
