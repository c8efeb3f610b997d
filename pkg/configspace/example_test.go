package configspace_test

import (
	"fmt"
	"log"

	"github.com/spysmac/spysmac/pkg/configspace"
)

func Example() {
	space, err := configspace.ParseString(`
restarts {none, luby, geometric} [luby]
restart-base [10, 1000] [100] il
restart-base | restarts in {luby, geometric}
decay [0.5, 0.999] [0.95]
`)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(space.Names())
	fmt.Println(space.Levels())

	defaults := space.Defaults()
	for _, name := range space.Names() {
		if val, ok := defaults[name]; ok {
			fmt.Printf("%s=%s\n", name, val)
		}
	}

	// Output:
	// [decay restarts restart-base]
	// [[decay restarts] [restart-base]]
	// decay=0.95
	// restarts=luby
	// restart-base=100
}

func ExampleSpace_Fill() {
	space, err := configspace.ParseString(`
solver {dpll, cdcl} [cdcl]
lookahead [1, 8] [4] i
lookahead | solver in {dpll}
`)
	if err != nil {
		log.Fatal(err)
	}

	v := space.DefaultVector()
	fmt.Println(space.Fill(v, configspace.FillConstant(configspace.DefaultFillValue)))
	fmt.Println(space.Fill(v, configspace.FillMean))

	// Output:
	// [1 -512]
	// [1 0.5]
}

func ExampleSpace_IsForbidden() {
	space, err := configspace.ParseString(`
preprocess {on, off} [on]
restarts {on, off} [on]
{preprocess=off, restarts=off}
`)
	if err != nil {
		log.Fatal(err)
	}

	v, err := space.Encode(configspace.Configuration{
		"preprocess": configspace.Categorical("off"),
		"restarts":   configspace.Categorical("off"),
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(space.IsForbidden(v))
	fmt.Println(space.IsForbidden(space.DefaultVector()))

	// Output:
	// true
	// false
}
