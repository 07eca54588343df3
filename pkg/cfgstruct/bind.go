// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package cfgstruct translates annotated config structs into flag sets.
package cfgstruct

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// EnvAlias is the flag annotation that names an exact environment variable
// which overrides the flag value.
const EnvAlias = "envalias"

// FlagSet is an interface that matches *pflag.FlagSet.
type FlagSet interface {
	BoolVar(p *bool, name string, value bool, usage string)
	IntVar(p *int, name string, value int, usage string)
	Int64Var(p *int64, name string, value int64, usage string)
	UintVar(p *uint, name string, value uint, usage string)
	Uint64Var(p *uint64, name string, value uint64, usage string)
	DurationVar(p *time.Duration, name string, value time.Duration, usage string)
	Float64Var(p *float64, name string, value float64, usage string)
	StringVar(p *string, name string, value string, usage string)
	StringArrayVar(p *[]string, name string, value []string, usage string)
	Var(val pflag.Value, name string, usage string)
	MarkHidden(name string) error
}

// BindOpt is an option for the Bind method.
type BindOpt struct {
	isDev   *bool
	isSetup *bool
	varfn   func(vars map[string]confVar)
}

type confVar struct {
	val    string
	nested bool
}

// ConfDir sets a variable for the default value called $CONFDIR.
func ConfDir(path string) BindOpt {
	val := filepath.Clean(os.ExpandEnv(path))
	return BindOpt{varfn: func(vars map[string]confVar) {
		vars["CONFDIR"] = confVar{val: val, nested: false}
	}}
}

// SetupMode issues the bind in a mode where it does not ignore fields with
// the `setup:"true"` tag.
func SetupMode() BindOpt {
	setup := true
	return BindOpt{isSetup: &setup}
}

// UseDevDefaults forces the bind to use development defaults.
func UseDevDefaults() BindOpt {
	dev := true
	return BindOpt{isDev: &dev}
}

// UseReleaseDefaults forces the bind to use release defaults.
func UseReleaseDefaults() BindOpt {
	dev := false
	return BindOpt{isDev: &dev}
}

// Bind sets flags on a FlagSet that match the configuration struct 'config'.
// This works by traversing the config struct using the 'reflect' package.
func Bind(flags FlagSet, config interface{}, opts ...BindOpt) {
	ptrtype := reflect.TypeOf(config)
	if ptrtype.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("invalid config type: %#v, expecting pointer to struct", config))
	}

	isDev := false
	setupCommand := false
	vars := map[string]confVar{}
	for _, opt := range opts {
		if opt.varfn != nil {
			opt.varfn(vars)
		}
		if opt.isDev != nil {
			isDev = *opt.isDev
		}
		if opt.isSetup != nil {
			setupCommand = *opt.isSetup
		}
	}

	bindConfig(flags, "", reflect.ValueOf(config).Elem(), vars, setupCommand, isDev)
}

func bindConfig(flags FlagSet, prefix string, val reflect.Value, vars map[string]confVar, setupCommand, isDev bool) {
	if val.Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type: %#v, expecting struct", val.Interface()))
	}
	typ := val.Type()

	resolvedVars := make(map[string]string, len(vars))
	{
		structpath := strings.ReplaceAll(prefix, ".", string(filepath.Separator))
		for k, v := range vars {
			if !v.nested {
				resolvedVars[k] = v.val
				continue
			}
			resolvedVars[k] = filepath.Join(v.val, structpath)
		}
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldval := val.Field(i)
		flagname := prefix + hyphenate(snakeCase(field.Name))

		if field.Tag.Get("internal") == "true" {
			continue
		}

		// setup fields exist only on setup commands and never end up in
		// saved config files.
		onlyForSetup := field.Tag.Get("setup") == "true"
		if onlyForSetup && !setupCommand {
			continue
		}

		if field.Type.Kind() == reflect.Struct && !isPflagValue(fieldval) {
			if field.Anonymous {
				bindConfig(flags, prefix, fieldval, vars, setupCommand, isDev)
			} else {
				bindConfig(flags, flagname+".", fieldval, vars, setupCommand, isDev)
			}
			continue
		}

		if (field.Type.Kind() == reflect.Array || field.Type.Kind() == reflect.Slice) &&
			field.Type.Elem().Kind() == reflect.Struct {
			digits := len(fmt.Sprint(fieldval.Len()))
			for j := 0; j < fieldval.Len(); j++ {
				padding := strings.Repeat("0", digits-len(fmt.Sprint(j)))
				bindConfig(flags, fmt.Sprintf("%s.%s%d.", flagname, padding, j), fieldval.Index(j), vars, setupCommand, isDev)
			}
			continue
		}

		help := field.Tag.Get("help")
		def := field.Tag.Get("default")
		if isDev {
			if devDef, ok := field.Tag.Lookup("devDefault"); ok {
				def = devDef
			}
		} else if relDef, ok := field.Tag.Lookup("releaseDefault"); ok {
			def = relDef
		}

		fieldaddr := fieldval.Addr().Interface()
		check := func(err error) {
			if err != nil {
				panic(fmt.Sprintf("invalid default value %q for %s: %v", def, flagname, err))
			}
		}

		switch field.Type {
		case reflect.TypeOf(int(0)):
			val, err := strconv.ParseInt(def, 0, strconv.IntSize)
			check(err)
			flags.IntVar(fieldaddr.(*int), flagname, int(val), help)

		case reflect.TypeOf(int64(0)):
			val, err := strconv.ParseInt(def, 0, 64)
			check(err)
			flags.Int64Var(fieldaddr.(*int64), flagname, val, help)

		case reflect.TypeOf(uint(0)):
			val, err := strconv.ParseUint(def, 0, strconv.IntSize)
			check(err)
			flags.UintVar(fieldaddr.(*uint), flagname, uint(val), help)

		case reflect.TypeOf(uint64(0)):
			val, err := strconv.ParseUint(def, 0, 64)
			check(err)
			flags.Uint64Var(fieldaddr.(*uint64), flagname, val, help)

		case reflect.TypeOf(time.Duration(0)):
			val, err := time.ParseDuration(def)
			check(err)
			flags.DurationVar(fieldaddr.(*time.Duration), flagname, val, help)

		case reflect.TypeOf(float64(0)):
			val, err := strconv.ParseFloat(def, 64)
			check(err)
			flags.Float64Var(fieldaddr.(*float64), flagname, val, help)

		case reflect.TypeOf(string("")):
			flags.StringVar(fieldaddr.(*string), flagname, expand(resolvedVars, def), help)

		case reflect.TypeOf(bool(false)):
			val, err := strconv.ParseBool(def)
			check(err)
			flags.BoolVar(fieldaddr.(*bool), flagname, val, help)

		case reflect.TypeOf([]string(nil)):
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			flags.StringArrayVar(fieldaddr.(*[]string), flagname, vals, help)

		default:
			value, ok := fieldaddr.(pflag.Value)
			if !ok {
				panic(fmt.Sprintf("invalid field type %v for %s: the field must be a supported primitive or implement pflag.Value", field.Type, flagname))
			}
			if def != "" {
				check(value.Set(def))
			}
			flags.Var(value, flagname, help)
		}

		if onlyForSetup {
			setBoolAnnotation(flags, flagname, "setup")
		}
		if field.Tag.Get("user") == "true" {
			setBoolAnnotation(flags, flagname, "user")
		}
		if field.Tag.Get("hidden") == "true" {
			err := flags.MarkHidden(flagname)
			check(err)
		}
		if env := field.Tag.Get("env"); env != "" {
			setStringAnnotation(flags, flagname, EnvAlias, env)
		}
	}
}

func isPflagValue(fieldval reflect.Value) bool {
	_, ok := fieldval.Addr().Interface().(pflag.Value)
	return ok
}

func setBoolAnnotation(flagset interface{}, name, key string) {
	setStringAnnotation(flagset, name, key, "true")
}

func setStringAnnotation(flagset interface{}, name, key, value string) {
	flags, ok := flagset.(*pflag.FlagSet)
	if !ok {
		return
	}
	err := flags.SetAnnotation(name, key, []string{value})
	if err != nil {
		panic(fmt.Sprintf("unable to set %s annotation for %s: %v", key, name, err))
	}
}

func expand(vars map[string]string, val string) string {
	return os.Expand(val, func(key string) string { return vars[key] })
}

// snakeCase converts the given string to snake_case.
func snakeCase(val string) string {
	// don't you think this function should be in the standard library?
	// me too.
	if len(val) <= 1 {
		return strings.ToLower(val)
	}
	runes := []rune(val)
	rv := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		rv = append(rv, runes[i])
		if i < len(runes)-1 &&
			unicodeIsLower(runes[i]) &&
			unicodeIsUpper(runes[i+1]) {
			// lower-to-upper transition
			rv = append(rv, '_')
		} else if i < len(runes)-2 &&
			unicodeIsUpper(runes[i]) &&
			unicodeIsUpper(runes[i+1]) &&
			unicodeIsLower(runes[i+2]) {
			// end of an acronym
			rv = append(rv, '_')
		}
	}
	return strings.ToLower(string(rv))
}

func unicodeIsLower(r rune) bool { return 'a' <= r && r <= 'z' }
func unicodeIsUpper(r rune) bool { return 'A' <= r && r <= 'Z' }

// hyphenate converts the given string to a hyphenated string.
func hyphenate(val string) string {
	return strings.ReplaceAll(val, "_", "-")
}
