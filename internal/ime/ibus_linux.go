//go:build linux

package ime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"snippetd/internal/logging"
)

// IBus D-Bus constants
const (
	IBusFactoryPath      = "/org/freedesktop/IBus/Factory"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusServiceInterface = "org.freedesktop.IBus.Service"
)

// IBusCapSurroundingText is the client capability bit for surrounding
// text support.
const IBusCapSurroundingText uint32 = 1 << 5

// ibusAttrList is the wire form of IBusAttrList: (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attrs       []dbus.Variant
}

// ibusText is the wire form of IBusText: (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

func newIBusText(s string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		AttrList: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attrs:       []dbus.Variant{},
		}),
	})
}

// textOf extracts the string carried by a serialized IBusText.
func textOf(v dbus.Variant) (string, bool) {
	switch val := v.Value().(type) {
	case string:
		return val, true
	case []interface{}:
		if len(val) >= 3 {
			s, ok := val[2].(string)
			return s, ok
		}
	case ibusText:
		return val.Text, true
	}
	return "", false
}

// busEmitter sends engine signals for one engine object.
type busEmitter struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

func (b busEmitter) DeleteSurroundingText(offset int32, nchars uint32) error {
	return b.conn.Emit(b.path, IBusEngineInterface+".DeleteSurroundingText", offset, nchars)
}

func (b busEmitter) CommitText(text string) error {
	return b.conn.Emit(b.path, IBusEngineInterface+".CommitText", newIBusText(text))
}

func (b busEmitter) requireSurroundingText() error {
	return b.conn.Emit(b.path, IBusEngineInterface+".RequireSurroundingText")
}

// Server registers the snippetd engine factory with IBus.
type Server struct {
	host       *Host
	engineName string
	logger     *logging.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	engines map[dbus.ObjectPath]*engineObject
	nextID  uint32
	stopped bool
}

// NewServer creates a server that creates sessions on host.
func NewServer(host *Host, engineName string, logger *logging.Logger) *Server {
	if engineName == "" {
		engineName = EngineName
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		host:       host,
		engineName: engineName,
		logger:     logger.WithComponent("ibus"),
		engines:    make(map[dbus.ObjectPath]*engineObject),
	}
}

// connect opens a private connection to the IBus bus. IBUS_ADDRESS selects
// the bus; otherwise the session bus is used.
func connect() (*dbus.Conn, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return dbus.Connect(addr)
	}
	return dbus.ConnectSessionBus()
}

// Start connects to the bus, claims the bus name and exports the factory.
// The server stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	conn, err := connect()
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return errors.New("bus name already taken")
	}

	if err := conn.Export(&factory{server: s}, IBusFactoryPath, IBusFactoryInterface); err != nil {
		conn.Close()
		return fmt.Errorf("failed to export factory: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("ibus engine started", "bus_name", BusName, "engine", s.engineName)
	return nil
}

// Stop releases the bus name and closes the connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.conn == nil {
		return nil
	}
	s.stopped = true
	for path := range s.engines {
		s.conn.Export(nil, path, IBusEngineInterface)
		s.conn.Export(nil, path, IBusServiceInterface)
	}
	s.engines = nil
	s.conn.ReleaseName(BusName)
	s.logger.Info("ibus engine stopped")
	return s.conn.Close()
}

// Engines returns the number of live engine objects.
func (s *Server) Engines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

func (s *Server) createEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	if name != s.engineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"Unknown engine: " + name})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.stopped {
		return "", dbus.MakeFailedError(errors.New("server stopped"))
	}

	s.nextID++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/%d", s.nextID))
	emitter := busEmitter{conn: s.conn, path: path}
	obj := &engineObject{
		server:  s,
		path:    path,
		emitter: emitter,
		session: s.host.NewSession(emitter),
	}
	if err := s.conn.Export(obj, path, IBusEngineInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	if err := s.conn.Export(obj, path, IBusServiceInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	s.engines[path] = obj

	s.logger.Debug("engine created", "path", path)
	return path, nil
}

func (s *Server) destroyEngine(path dbus.ObjectPath) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[path]; !ok || s.conn == nil {
		return
	}
	delete(s.engines, path)
	s.conn.Export(nil, path, IBusEngineInterface)
	s.conn.Export(nil, path, IBusServiceInterface)
	s.logger.Debug("engine destroyed", "path", path)
}

// factory implements org.freedesktop.IBus.Factory.
type factory struct {
	server *Server
}

// CreateEngine creates a new engine instance for IBus.
func (f *factory) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	return f.server.createEngine(engineName)
}

// engineObject implements org.freedesktop.IBus.Engine for one input
// context.
type engineObject struct {
	server  *Server
	path    dbus.ObjectPath
	emitter busEmitter
	session *Session

	mu   sync.Mutex
	caps uint32
}

// ProcessKeyEvent passes every key through to the application.
func (e *engineObject) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	return false, nil
}

// FocusIn is called when the engine gains input focus.
func (e *engineObject) FocusIn() *dbus.Error {
	e.session.SetFocused(true)
	if err := e.emitter.requireSurroundingText(); err != nil {
		e.server.logger.Warn("require surrounding text failed", "error", err)
	}
	return nil
}

// FocusOut is called when the engine loses input focus.
func (e *engineObject) FocusOut() *dbus.Error {
	e.session.SetFocused(false)
	e.session.Reset()
	return nil
}

// Enable is called when the engine is enabled.
func (e *engineObject) Enable() *dbus.Error {
	if err := e.emitter.requireSurroundingText(); err != nil {
		e.server.logger.Warn("require surrounding text failed", "error", err)
	}
	return nil
}

// Disable is called when the engine is disabled.
func (e *engineObject) Disable() *dbus.Error {
	e.session.Reset()
	return nil
}

// Reset resets the engine state.
func (e *engineObject) Reset() *dbus.Error {
	e.session.Reset()
	return nil
}

// SetCapabilities informs about client capabilities.
func (e *engineObject) SetCapabilities(caps uint32) *dbus.Error {
	e.mu.Lock()
	e.caps = caps
	e.mu.Unlock()
	if caps&IBusCapSurroundingText == 0 {
		e.server.logger.Debug("client lacks surrounding text support", "path", e.path)
	}
	return nil
}

// SetContentType informs about the type of content being edited.
func (e *engineObject) SetContentType(purpose, hints uint32) *dbus.Error {
	return nil
}

// SetCursorLocation informs about cursor position.
func (e *engineObject) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// SetSurroundingText delivers the text around the caret.
func (e *engineObject) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	s, ok := textOf(text)
	if !ok {
		e.server.logger.Warn("unreadable surrounding text", "signature", text.Signature().String())
		return nil
	}
	e.session.Update(s, int(cursorPos))
	return nil
}

// PropertyActivate handles property activations.
func (e *engineObject) PropertyActivate(propName string, state uint32) *dbus.Error {
	return nil
}

// PageUp handles page up in candidate list.
func (e *engineObject) PageUp() *dbus.Error { return nil }

// PageDown handles page down in candidate list.
func (e *engineObject) PageDown() *dbus.Error { return nil }

// CursorUp handles cursor up in candidate list.
func (e *engineObject) CursorUp() *dbus.Error { return nil }

// CursorDown handles cursor down in candidate list.
func (e *engineObject) CursorDown() *dbus.Error { return nil }

// CandidateClicked handles candidate selection.
func (e *engineObject) CandidateClicked(index, button, state uint32) *dbus.Error {
	return nil
}

// Destroy implements org.freedesktop.IBus.Service.
func (e *engineObject) Destroy() *dbus.Error {
	e.server.destroyEngine(e.path)
	return nil
}
