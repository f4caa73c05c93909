// Package integrationtests runs HCL blueprints end to end through the engine
// with the bundled modules.
package integrationtests
