// Package pdf converts rendered HTML files into PDF files.
//
// Two backends are available: the wkhtmltopdf binary, run through a
// command.Runner, and headless Chrome driven by go-rod. Both write the PDF
// to the requested path; callers decide success by checking that the file
// exists, since wkhtmltopdf reports non-zero exit codes for missing remote
// resources even when the document was produced.
package pdf
