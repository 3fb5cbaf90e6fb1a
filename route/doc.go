// Package route maps intercepted requests onto caching strategies.
//
// A Router holds an ordered list of named rules. Each rule pairs a Matcher
// (URL and request-type predicates) and a method set with a strategy.Config.
// The first rule that matches wins; a request no rule claims passes through
// to the network untouched.
//
// Rules can be built in code with the matcher combinators or loaded from a
// YAML file with LoadRulesFile. String values in rule files may reference
// environment variables as ${VAR}; a missing variable is an error and $$
// produces a literal dollar sign.
package route
