// Package stealth holds the in-page patches that hide common automation
// signals: navigator.webdriver, the permissions query for notifications, the
// plugin list and the WebGL vendor strings.
//
// The patches are best effort. Detection scripts that look for the patches
// themselves will find them.
package stealth

import _ "embed"

//go:embed stealth.js
var script string

// Script returns the patch source. It is safe to evaluate more than once per
// document.
func Script() string { return script }

// LongHelp is shown for the --stealth flag.
const LongHelp = "Stealth mode may not work as intended and only lead to an easier detection of an automated browser.\n" +
	"Stealth mode tries to bypass (generalize) the following JS objects: webdriver, permissions, plugins, webgl vendor."
