// Package imaging decodes page images and turns them into the vertical run
// tables used for calibration.
//
// # Decoding
//
// PageCache decodes PNG, JPEG, GIF, TIFF and BMP scans through
// github.com/disintegration/imaging, applying the EXIF orientation, and keeps
// both the decoded image and its run tables for later calls. It is safe for
// concurrent use. DecodeRuns decodes a page without caching anything, for
// batch work where each page is seen once.
//
// # Binarization
//
// Binarize flattens the page onto a white background, converts it to gray and
// applies a global threshold: pixels darker than the level are foreground.
// DefaultLevel suits typical 300 DPI scans; clean digital engravings work with
// any level. RunTable chains binarization and run extraction.
//
// # Coordinate System
//
// Coordinates are 0-based from the top-left corner of the image: X increases
// rightward and Y downward. Run tables are relative to the image bounds.
package imaging
