// File: internal/monitor/cdp.go
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
)

// attachQueueSize bounds the console events waiting for serialization.
const attachQueueSize = 256

// stringifyFn runs with the console argument bound to this.
const stringifyFn = `function(){return JSON.stringify(this,null,2)}`

// Serializer returns the JSON.stringify text of a remote object.
type Serializer func(ctx context.Context, id runtime.RemoteObjectID) ([]byte, error)

// Attach listens to the console and exception events of the tab behind tabCtx
// and records them, on loop, into whichever monitor current returns. current
// is only called from the loop.
//
// Listener callbacks must not issue CDP commands, so object arguments are
// serialized on a worker goroutine that forwards events in arrival order. The
// worker exits with tabCtx.
func Attach(tabCtx context.Context, logger *zap.Logger, loop *eventloop.Loop, current func() *Monitor) {
	f := newForwarder(logger, loop, current, stringifyRemote, attachQueueSize)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			logType, ok := consoleType(e.Type)
			if !ok {
				return
			}
			f.enqueue(consoleEvent{logType: logType, args: e.Args, at: eventTime(e.Timestamp)})

		case *runtime.EventExceptionThrown:
			exc, ok := ExceptionFromCDP(e)
			if !ok {
				return
			}
			f.enqueue(consoleEvent{exc: &exc})
		}
	})
	go f.run(tabCtx)
}

// stringifyRemote serializes an object inside the page. ctx must be the
// chromedp context of the tab that owns id.
func stringifyRemote(ctx context.Context, id runtime.RemoteObjectID) ([]byte, error) {
	var (
		res *runtime.RemoteObject
		exc *runtime.ExceptionDetails
	)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		res, exc, err = runtime.CallFunctionOn(stringifyFn).
			WithObjectID(id).
			WithReturnByValue(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("stringify threw: %s", exc.Text)
	}
	return stringifyResult(res)
}

// stringifyResult unwraps the string JSON.stringify returned by value.
func stringifyResult(res *runtime.RemoteObject) ([]byte, error) {
	if res == nil || res.Type != runtime.TypeString {
		return nil, errors.New("value is not serializable")
	}
	var s string
	if err := json.Unmarshal(res.Value, &s); err != nil {
		return nil, fmt.Errorf("failed to decode stringify result: %w", err)
	}
	return []byte(s), nil
}

// ResolveArg classifies o, asking serialize for the full JSON of objects the
// page still holds. Objects that fail to serialize, such as cyclic ones, fall
// back to their preview or description.
func ResolveArg(ctx context.Context, o *runtime.RemoteObject, serialize Serializer) Arg {
	if serialize != nil && serializable(o) {
		if raw, err := serialize(ctx, o.ObjectID); err == nil {
			return Structured(raw, o.Description, string(o.Type))
		}
	}
	return ArgFromRemote(o)
}

func serializable(o *runtime.RemoteObject) bool {
	if o == nil || o.Type != runtime.TypeObject || o.ObjectID == "" || len(o.Value) > 0 {
		return false
	}
	switch o.Subtype {
	case runtime.SubtypeNull, runtime.SubtypeError, runtime.SubtypeNode, runtime.SubtypeRegexp, runtime.SubtypeDate:
		return false
	}
	return true
}

// consoleEvent is either a console call or an exception, when exc is set.
type consoleEvent struct {
	logType schemas.LogType
	args    []*runtime.RemoteObject
	at      time.Time
	exc     *Exception
}

// forwarder serializes console events off the CDP listener and posts them to
// the tab loop one at a time.
type forwarder struct {
	logger    *zap.Logger
	loop      *eventloop.Loop
	current   func() *Monitor
	serialize Serializer
	queue     chan consoleEvent
	dropped   atomic.Int64
}

func newForwarder(logger *zap.Logger, loop *eventloop.Loop, current func() *Monitor, serialize Serializer, size int) *forwarder {
	return &forwarder{
		logger:    logger.Named("console_forwarder"),
		loop:      loop,
		current:   current,
		serialize: serialize,
		queue:     make(chan consoleEvent, size),
	}
}

// enqueue never blocks; events past a full queue are dropped.
func (f *forwarder) enqueue(ev consoleEvent) bool {
	select {
	case f.queue <- ev:
		return true
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Warn("Console queue full, dropping events.", zap.Int64("dropped", n))
		}
		return false
	}
}

func (f *forwarder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.forward(ctx, ev)
		}
	}
}

func (f *forwarder) forward(ctx context.Context, ev consoleEvent) {
	if ev.exc != nil {
		exc := *ev.exc
		f.loop.TryPost(func(context.Context) {
			if m := f.current(); m != nil {
				m.RecordException(exc)
			}
		})
		return
	}

	args := make([]Arg, len(ev.args))
	for i, a := range ev.args {
		args[i] = ResolveArg(ctx, a, f.serialize)
	}
	f.loop.TryPost(func(context.Context) {
		if m := f.current(); m != nil {
			m.Record(ev.logType, args, ev.at)
		}
	})
}

// consoleType maps the four intercepted console methods.
func consoleType(t runtime.APIType) (schemas.LogType, bool) {
	switch t {
	case runtime.APITypeLog:
		return schemas.LogTypeLog, true
	case runtime.APITypeWarning:
		return schemas.LogTypeWarn, true
	case runtime.APITypeError:
		return schemas.LogTypeError, true
	case runtime.APITypeInfo:
		return schemas.LogTypeInfo, true
	}
	return "", false
}

func eventTime(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}

// ExceptionFromCDP converts an exceptionThrown event.
func ExceptionFromCDP(e *runtime.EventExceptionThrown) (Exception, bool) {
	d := e.ExceptionDetails
	if d == nil {
		return Exception{}, false
	}

	exc := Exception{
		Message: d.Text,
		URL:     d.URL,
		Line:    d.LineNumber + 1,
		Column:  d.ColumnNumber + 1,
		At:      eventTime(e.Timestamp),
	}
	if exc.URL == "" && d.StackTrace != nil && len(d.StackTrace.CallFrames) > 0 {
		exc.URL = d.StackTrace.CallFrames[0].URL
	}

	if obj := d.Exception; obj != nil {
		// The description of an Error is its message line followed by the stack.
		if obj.Description != "" {
			first, rest, _ := strings.Cut(obj.Description, "\n")
			if !strings.Contains(d.Text, first) {
				exc.Message = strings.TrimSpace(d.Text + " " + first)
			}
			if strings.TrimSpace(rest) != "" {
				exc.Stack = obj.Description
			}
		} else if a := ArgFromRemote(obj); a.Kind == ArgPrimitive {
			// A thrown primitive, e.g. `throw "nope"`.
			exc.Message = strings.TrimSpace(d.Text + " " + a.Text)
		}
	}
	return exc, true
}

// ArgFromRemote classifies a CDP remote object.
func ArgFromRemote(o *runtime.RemoteObject) Arg {
	if o == nil {
		return Primitive("undefined")
	}
	typeName := string(o.Type)

	switch o.Type {
	case runtime.TypeUndefined:
		return Primitive("undefined")
	case runtime.TypeString:
		var s string
		if err := json.Unmarshal([]byte(o.Value), &s); err == nil {
			return Primitive(s)
		}
		return Opaque(o.Description, typeName)
	case runtime.TypeNumber, runtime.TypeBoolean:
		if o.UnserializableValue != "" {
			return Primitive(o.UnserializableValue.String())
		}
		if len(o.Value) > 0 {
			return Primitive(string(o.Value))
		}
		return Opaque(o.Description, typeName)
	case runtime.TypeBigint:
		return Primitive(strings.TrimSuffix(o.UnserializableValue.String(), "n"))
	case runtime.TypeSymbol, runtime.TypeFunction:
		return Opaque(o.Description, typeName)
	case runtime.TypeObject:
		switch o.Subtype {
		case runtime.SubtypeNull:
			return Primitive("null")
		case runtime.SubtypeError, runtime.SubtypeNode, runtime.SubtypeRegexp, runtime.SubtypeDate:
			return Opaque(o.Description, typeName)
		}
		if len(o.Value) > 0 {
			return Structured([]byte(o.Value), o.Description, typeName)
		}
		if raw, ok := previewJSON(o.Preview); ok {
			return Structured(raw, o.Description, typeName)
		}
		return Opaque(o.Description, typeName)
	}
	return Opaque(o.Description, typeName)
}

// previewJSON rebuilds the JSON of a plain object or array from its preview,
// keeping property order. It is the fallback when the page cannot stringify
// the value, so truncated previews are rejected.
func previewJSON(p *runtime.ObjectPreview) ([]byte, bool) {
	if p == nil || p.Overflow || p.Type != runtime.TypeObject {
		return nil, false
	}
	switch p.Subtype {
	case runtime.SubtypeArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, prop := range p.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, ok := previewValue(prop)
			if !ok {
				v = []byte("null")
			}
			buf.Write(v)
		}
		buf.WriteByte(']')
		return buf.Bytes(), true
	case "":
		var buf bytes.Buffer
		buf.WriteByte('{')
		n := 0
		for _, prop := range p.Properties {
			v, ok := previewValue(prop)
			if !ok {
				continue
			}
			if n > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(prop.Name)
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(v)
			n++
		}
		buf.WriteByte('}')
		return buf.Bytes(), true
	}
	return nil, false
}

// previewValue renders one preview property as JSON. It reports false for
// values JSON.stringify would drop.
func previewValue(prop *runtime.PropertyPreview) ([]byte, bool) {
	switch prop.Type {
	case runtime.TypeUndefined, runtime.TypeFunction, runtime.TypeSymbol, runtime.TypeAccessor:
		return nil, false
	case runtime.TypeNumber:
		f, err := strconv.ParseFloat(prop.Value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return []byte("null"), true
		}
		return []byte(prop.Value), true
	case runtime.TypeBoolean:
		return []byte(strconv.FormatBool(prop.Value == "true")), true
	case runtime.TypeObject:
		if prop.Subtype == runtime.SubtypeNull {
			return []byte("null"), true
		}
		if raw, ok := previewJSON(prop.ValuePreview); ok {
			return raw, true
		}
	}
	s, _ := json.Marshal(prop.Value)
	return s, true
}
