// Package policy vetoes candidate configurations with Open Policy Agent
// (OPA) Rego rules.
//
// Constraint policies live in the spysmac.constraints package and define
// deny rules over input.config, which maps every active parameter to its
// value:
//
//	package spysmac.constraints
//
//	deny[msg] {
//	    input.config.restarts == "luby"
//	    input.config.base < 50
//	    msg := "luby restarts need a larger base"
//	}
//
// A rule may also produce an object with message, severity and parameter
// fields. Violations with severity "warning" are reported but do not veto.
// Parameters that are inactive in a configuration are absent from
// input.config, so rules mentioning them are undefined rather than false.
//
// Modules in other packages are compiled alongside the constraints and can
// be imported as helper libraries. The Engine implements the search
// package's Constraint interface:
//
//	eng := policy.NewEngine(logger)
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	allowed, reasons, err := eng.Allowed(ctx, cfg)
//
// Policies can be reloaded on change with Engine.Watch. A reload that does
// not compile leaves the previous policies in place.
package policy
