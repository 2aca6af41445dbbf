// internal/browser/tab.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
	"github.com/xkilldash9x/bugreport-cli/internal/monitor"
)

// tab is one page target with its own event loop. scope is only touched
// from tasks on loop.
type tab struct {
	id       int
	targetID target.ID
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	loop       *eventloop.Loop
	stopLoop   context.CancelFunc
	unlisten   func()
	monitorOpt []monitor.Option

	scope *monitor.Scope
}

// renewScope starts a new document lifetime with a fresh monitor.
func (t *tab) renewScope() {
	t.scope = monitor.NewScope()
	monitor.Install(t.scope, t.logger, t.pageInfo, t.monitorOpt...)
}

func (t *tab) currentMonitor() *monitor.Monitor {
	if t.scope == nil {
		return nil
	}
	return t.scope.Monitor()
}

// handle routes tab messages to the monitor of the current document.
func (t *tab) handle(ctx context.Context, req schemas.Request, sender bus.Sender, respond bus.Respond) bus.Disposition {
	m := t.currentMonitor()
	if m == nil {
		return bus.NotHandled
	}
	return m.Handle(ctx, req, sender, respond)
}

// watchNavigation renews the scope whenever the main frame commits a new
// document.
func (t *tab) watchNavigation() {
	chromedp.ListenTarget(t.ctx, func(ev interface{}) {
		e, ok := ev.(*page.EventFrameNavigated)
		if !ok || e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		url := e.Frame.URL
		t.loop.TryPost(func(context.Context) {
			t.logger.Debug("Main frame navigated; new document scope.", zap.String("url", url))
			t.renewScope()
		})
	})
}

const pageInfoScript = `({
	url: location.href,
	title: document.title,
	userAgent: navigator.userAgent,
	width: window.innerWidth,
	height: window.innerHeight
})`

type pageInfoResult struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	UserAgent string `json:"userAgent"`
	Width     int64  `json:"width"`
	Height    int64  `json:"height"`
}

func (r pageInfoResult) info() monitor.PageInfo {
	return monitor.PageInfo{
		URL:       r.URL,
		Title:     r.Title,
		UserAgent: r.UserAgent,
		Viewport:  schemas.Viewport{Width: r.Width, Height: r.Height},
	}
}

// pageInfo reads the document metadata from the page itself.
func (t *tab) pageInfo(ctx context.Context) (monitor.PageInfo, error) {
	var res pageInfoResult
	if err := t.run(ctx, chromedp.Evaluate(pageInfoScript, &res)); err != nil {
		return monitor.PageInfo{}, fmt.Errorf("failed to evaluate page info: %w", err)
	}
	return res.info(), nil
}

// run executes actions on the tab, aborting when either ctx or the tab ends.
func (t *tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
