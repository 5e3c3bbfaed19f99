// Package pdal assembles PDAL pipelines and runs the pdal engine.
//
// A pipeline is built writer first, then filters, then readers:
//
//	b := pdal.NewRasterWriter("/out/dsm", 0.56, 0.1, "idw")
//	b.MaxZ(120).Classification(2, pdal.ClassEquals)
//	p, err := b.Readers("a.las", "b.las")
//
// The finished stage order is [merge], readers in reverse call order,
// filters in reverse call order, writer. Filters added later therefore sit
// closer to the data source. [Executor] serializes a [Pipeline] to a
// temporary JSON file and runs "pdal pipeline" against it; the ground
// classification invokers call "pdal ground" and "pdal translate ... smrf"
// directly.
package pdal
