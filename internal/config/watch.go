package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the config file at path whenever it changes on disk and
// invokes onChange with the fresh config. Invalid edits are logged and
// skipped, keeping the last good config in effect.
func Watch(path string, onChange func(*Config)) error {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := LoadFromPath(e.Name)
		if err != nil {
			log.Printf("[config] reload of %s failed: %v", e.Name, err)
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Printf("[config] reload of %s rejected: %v", e.Name, err)
			return
		}
		log.Printf("[config] reloaded %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}
