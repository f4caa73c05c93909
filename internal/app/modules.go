package app

import (
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/modules/condition"
	"github.com/specialistvlad/nodegrid/modules/delay"
	"github.com/specialistvlad/nodegrid/modules/env_vars"
	"github.com/specialistvlad/nodegrid/modules/http_request"
	"github.com/specialistvlad/nodegrid/modules/math"
	"github.com/specialistvlad/nodegrid/modules/print"
	"github.com/specialistvlad/nodegrid/modules/remote"
)

// coreModules returns the modules compiled into the nodegrid binary. A new
// set is built per App because some modules hold state.
func coreModules(s Streams) []handlers.Module {
	return []handlers.Module{
		&condition.Module{},
		&delay.Module{},
		&env_vars.Module{},
		&http_request.Module{},
		&math.Module{},
		&print.Module{Out: s.Err},
		&remote.Module{},
	}
}
