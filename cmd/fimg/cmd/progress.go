package cmd

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/flashimg/fimg/tasks"
)

// progressUI renders pipeline progress as one bar per stage.
type progressUI struct {
	p     *mpb.Progress
	bar   *mpb.Bar
	stage tasks.Stage
}

func newProgressUI() *progressUI {
	return &progressUI{p: mpb.New(mpb.WithWidth(60))}
}

func (ui *progressUI) update(stage tasks.Stage, done, total int64) {
	if ui.bar == nil || stage != ui.stage {
		if ui.bar != nil {
			ui.bar.SetTotal(-1, true)
		}
		ui.bar = ui.p.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(stage.String()+" "),
				decor.CountersKibiByte("% .1f / % .1f"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		ui.stage = stage
	}
	ui.bar.SetCurrent(done)
}

func (ui *progressUI) wait() {
	if ui.bar != nil {
		ui.bar.SetTotal(-1, true)
	}
	ui.p.Wait()
}
