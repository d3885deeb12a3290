package meshview

type Commands struct {
	app *App
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

// Quit ends the frame loop after the current frame completes.
func (cmd *Commands) Quit() {
	cmd.app.quit()
}
