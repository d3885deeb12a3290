package meshview

import (
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

// Module is an installable unit of functionality: it registers resources and
// systems on the app. Modules are installed in the order they were added to
// the builder, so a module may rely on resources of earlier modules.
type Module interface {
	Install(app *App, cmd *Commands)
}

// App drives the frame loop: every frame it walks the stages in order and
// calls each system registered in that stage. System parameters are resolved
// by reflection against the resource map, so a system is just a function
// taking pointers to the resources it works on.
type App struct {
	stages    []Stage
	systems   map[string][]systemFn
	resources map[reflect.Type]any
	quitting  bool
}

func newApp() *App {
	app := &App{
		systems:   make(map[string][]systemFn),
		resources: make(map[reflect.Type]any),
	}
	for _, stage := range defaultStages() {
		app.stages = append(app.stages, stage)
		app.systems[stage.Name] = make([]systemFn, 0)
	}
	return app
}

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// Run loops frames until a system requests quit (window close, escape, ...).
func (app *App) Run() {
	for !app.quitting {
		app.Step()
	}
}

// Step executes one full frame: all stages, all systems. Exposed so tests
// can drive the app frame by frame.
func (app *App) Step() {
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name] {
			app.callSystem(system)
		}
	}
}

func (app *App) quit() {
	app.quitting = true
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("resources must be pointers, got %s", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// mustResource fetches a resource during module install, panicking with msg
// when the module it belongs to has not been installed yet.
func mustResource[T any](app *App, msg string) *T {
	t := reflect.TypeOf((*T)(nil)).Elem()
	res, ok := app.resources[t]
	if !ok {
		panic(msg)
	}
	return res.(*T)
}

var typeOfCommands = reflect.TypeOf(Commands{})

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())

	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, ok := app.resources[underlyingType]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			msg := fmt.Sprintf("Unable to resolve system dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
				runtime.FuncForPC(systemValue.Pointer()).Name(),
				fmt.Sprint(systemType),
				fmt.Sprint(argType),
			)
			panic(msg)
		}
	}
	systemValue.Call(args)
}
