// Package fetch retrieves raw items from monitored sources. Each source type
// maps to an Adapter; the scheduler resolves adapters through the Registry
// and never talks to the network itself.
package fetch
