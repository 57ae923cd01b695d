package ime

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Bus names and metadata of the snippetd engine.
const (
	BusName       = "org.snippetd.IBus"
	EngineName    = "snippetd"
	EngineVersion = "1.0.0"
)

// ErrUnsupported is returned where no input method framework is available.
var ErrUnsupported = errors.New("ime: input method host not supported on this platform")

// Component describes the engine to ibus-daemon.
type Component struct {
	XMLName     xml.Name     `xml:"component"`
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	Exec        string       `xml:"exec"`
	Version     string       `xml:"version"`
	Author      string       `xml:"author"`
	License     string       `xml:"license"`
	TextDomain  string       `xml:"textdomain"`
	Engines     []EngineDesc `xml:"engines>engine"`
}

// EngineDesc is one engine entry of a component.
type EngineDesc struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Author      string `xml:"author"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol"`
}

// NewComponent returns the component for an engine registered as
// engineName whose process is started with execPath.
func NewComponent(engineName, execPath string) Component {
	if engineName == "" {
		engineName = EngineName
	}
	return Component{
		Name:        BusName,
		Description: "Snippet expansion input method",
		Exec:        execPath + " --ibus",
		Version:     EngineVersion,
		Author:      "snippetd",
		License:     "MIT",
		TextDomain:  "snippetd",
		Engines: []EngineDesc{{
			Name:        engineName,
			Language:    "other",
			License:     "MIT",
			Author:      "snippetd",
			Layout:      "default",
			LongName:    "Snippets",
			Description: "Expands snippet triggers as you type",
			Rank:        0,
			Symbol:      "S",
		}},
	}
}

// Marshal renders the component document.
func (c Component) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// Install writes the component XML to path.
func Install(path string, c Component) error {
	if path == "" {
		return errors.New("ime: empty component path")
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encode component: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create component directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write component: %w", err)
	}
	return nil
}

// Uninstall removes the component XML. A missing file is not an error.
func Uninstall(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove component: %w", err)
	}
	return nil
}

// IsInstalled reports whether a component file exists at path.
func IsInstalled(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
