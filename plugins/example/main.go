// Command pipeshell_plugin_example is a small plugin showing how commands
// written outside the shell receive arguments, stream results and report
// errors.
//
//	pipeshell -c 'plugin use ./pipeshell_plugin_example'
package main

import "github.com/josephlewis42/pipeshell/core/plugin"

func main() {
	plugin.Main(commands()...)
}
