/*
DESCRIPTION
  vars.go provides reading of receiver variables from a YAML file, and
  watching of that file for changes.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/receiver/config"
)

// createVarMap returns the receiver variable names mapped to their types.
func createVarMap() map[string]string {
	m := make(map[string]string)
	for _, v := range config.Variables {
		m[v.Name] = v.Type
	}
	return m
}

// readVars reads the receiver variables held by the YAML file at path.
// Values of any scalar type are accepted and given in their string form.
// Unknown variables are logged and left out.
func readVars(path string, l logging.Logger) (map[string]string, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseVars(d, l)
}

func parseVars(d []byte, l logging.Logger) (map[string]string, error) {
	var raw map[string]interface{}
	err := yaml.Unmarshal(d, &raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse vars: %w", err)
	}

	known := createVarMap()
	vars := make(map[string]string, len(raw))
	for k, v := range raw {
		if _, ok := known[k]; !ok {
			l.Warning("unknown variable", "name", k)
			continue
		}
		switch v := v.(type) {
		case map[string]interface{}, []interface{}:
			l.Warning("variable is not a scalar", "name", k)
			continue
		case nil:
			vars[k] = ""
		default:
			vars[k] = fmt.Sprint(v)
		}
	}
	return vars, nil
}

// watcher watches a config file. Close stops the watch and waits for the
// watching routine to return, abandoning any reload not yet received.
type watcher struct {
	*fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

// Close implements io.Closer.
func (w *watcher) Close() error {
	close(w.done)
	err := w.Watcher.Close()
	w.wg.Wait()
	return err
}

// watch watches the file at path, sending its variables to reload each time
// it is written. The directory is watched rather than the file, so that
// files replaced by renaming, as many editors do, are seen.
func watch(path string, l logging.Logger, reload chan<- map[string]string) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create watcher: %w", err)
	}
	err = fw.Add(filepath.Dir(path))
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("could not watch config directory: %w", err)
	}

	w := &watcher{Watcher: fw, done: make(chan struct{})}
	path = filepath.Clean(path)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) != path || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
					continue
				}
				l.Debug("config file changed", "event", e.String())
				vars, err := readVars(path, l)
				if err != nil {
					l.Warning("could not read changed config", "error", err.Error())
					continue
				}
				select {
				case reload <- vars:
				case <-w.done:
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.Warning("config watcher error", "error", err.Error())
			}
		}
	}()
	return w, nil
}
