// Package domain models river-network segments and their salinity
// classification.
//
// # Data Source
//
// Segments are river-network edges from a global hydrography dataset, already
// reprojected to WGS-84 by the upstream loaders. Each segment carries network
// topology attributes (Strahler stream order, mainstem flag, network distance
// to the nearest marine outlet, upstream drainage area), an estuary-catchment
// join (geomorphological typology), and point-sampled values from a coarse
// gridded hydrological model (salinity, discharge, water temperature).
//
// Field measurements come from a global station table. A segment that matches
// a station within the configured buffer gets a measured salinity value; all
// other segments are prediction targets for the trained classifier.
//
// # Venice System
//
// Salinity classes follow the Venice System (1958), by practical salinity
// units (PSU):
//
//	< 0.5        freshwater
//	[0.5, 5.0)   oligohaline
//	[5.0, 18.0)  mesohaline
//	>= 18.0      polyhaline
//
// Polyhaline and euhaline are deliberately not split; stations far enough
// seaward to exceed 30 PSU are marine, not riverine, and the hydrography
// network does not extend there.
//
// # Classification Method And Confidence
//
// Every segment ends a pipeline run with exactly one class, one method, and
// one confidence level:
//
//	measured        a field station match exists; the measurement always wins
//	                and confidence is always high.
//	model_predicted the bagged-tree classifier assigned the class; confidence
//	                is banded from the predicted class probability.
//	distance_rule   a physical-plausibility override replaced the model's
//	                answer (see below).
//
// # Distance Overrides
//
// No known natural estuary pushes tidal salinity influence beyond roughly
// 200 km of river network. Beyond that distance a non-freshwater prediction
// is extrapolation outside physical bounds, so it is forced to freshwater
// with method distance_rule. In the 100-200 km band, non-freshwater
// predictions the model itself is unsure about (low or very_low confidence)
// get the same correction at medium confidence. Measured segments are never
// overridden.
package domain
