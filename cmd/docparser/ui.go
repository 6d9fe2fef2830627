package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI prints status lines to w.
type UI struct {
	w io.Writer
}

// NewUI creates a UI writing to w.
func NewUI(w io.Writer) *UI {
	return &UI{w: w}
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(ui.w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(ui.w, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(ui.w, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// progressObserver drives a page progress bar from pipeline events. A spinner
// covers decoding and splitting; the bar replaces it on the first page event,
// once the page count is known.
type progressObserver struct {
	mu     sync.Mutex
	w      io.Writer
	spin   *spinner.Spinner
	bar    *progressbar.ProgressBar
	done   int
	failed int
}

func newProgressObserver(w io.Writer) *progressObserver {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	return &progressObserver{w: w, spin: s}
}

// Start shows the spinner with message until the first page starts.
func (p *progressObserver) Start(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.Suffix = " " + message
	p.spin.Start()
}

func (p *progressObserver) PageStarted(_ string, _ int, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.spin.Stop()
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("Transcribing pages"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("pages"),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(p.w, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
}

func (p *progressObserver) PageFinished(_ string, _ int, _ int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failed++
		return
	}
	p.done++
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Finish stops the spinner and closes the bar line if one was drawn.
func (p *progressObserver) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.Stop()
	if p.bar != nil && !p.bar.IsFinished() {
		_ = p.bar.Exit()
		fmt.Fprint(p.w, "\n")
	}
}
