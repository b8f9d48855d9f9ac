/*
battery-arbiter - Battery source arbitration for Zigbee devices
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package batteryd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
)

// readingsLog appends every battery observation to a CSV file.
type readingsLog struct {
	path     string
	maxLines int
}

func newReadingsLog(path string, maxLines int) (*readingsLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	r := &readingsLog{path: path, maxLines: maxLines}
	return r, r.trim()
}

// Format: timestamp, device, channel, raw, percent
func (r *readingsLog) append(at time.Time, id string, kind channel.Kind, raw float64, p curve.Percent) error {
	file, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	line := fmt.Sprintf("%s, %s, %s, %.2f, %d",
		at.Format("2006-01-02 15:04:05"), id, kind, raw, int(p))
	_, err = file.WriteString(line + "\n")
	return err
}

func (r *readingsLog) trim() error {
	if r.maxLines <= 0 {
		return nil
	}
	return keepLastLines(r.path, r.maxLines)
}

// keepLastLines keeps the last `maxLines` lines of the specified file.
func keepLastLines(filePath string, maxLines int) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}
	tmpFile := filePath + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.Command("tail", "-n", strconv.Itoa(maxLines), filePath)
	cmd.Stdout = out
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("err running '%s', %v, %v", strings.Join(cmd.Args, " "), stderr.String(), runErr)
	}
	return os.Rename(tmpFile, filePath)
}
