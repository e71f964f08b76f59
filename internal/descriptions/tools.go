package descriptions

// Tool descriptions with practical examples and use cases

const (
	// Ingest Tools
	IngestPDFDescription = `Build question records from an exam PDF in the input directory.

**When to use:** A past exam or question bank is available as a PDF with extractable text.

**Why it's useful:** Splits the text into numbered questions across page breaks, recognizes circled, parenthesized and Korean jamo choice markers, and resolves answers such as "정답: ②" or "Answer: BD" to canonical choice keys. Embedded images are saved and attached to the questions on the same page.

**Examples:**
• Ingest a certification exam: doc_id="info-2023-1", path="2023-1.pdf"
• Re-ingest after fixing rules: run again with the same doc_id to replace the records

**Common workflows:**
1. PDF only: exam_ingest_pdf → exam_validate → exam_report
2. Review: exam_ingest_pdf → check low_confidence count → inspect records with exam_get_records

**Best practices:** Paths are resolved inside the input directory. Scanned PDFs without a text layer fail with "no text content could be extracted".`

	IngestTextDescription = `Build question records from plain text, given inline or as a file in the input directory.

**When to use:** The exam text was already extracted elsewhere, or comes from a copy-paste.

**Why it's useful:** Runs the same segmentation, choice and answer resolution as the PDF path, so text from any source yields the same record shape.

**Examples:**
• Inline text: doc_id="quiz-1", text="1. 다음 중 ...\n① ...\n정답: ③"
• From a file: doc_id="quiz-2", path="quiz-2.txt"

**Best practices:** Give exactly one of text or path. Questions must start with a number ("1." "2)" "문제 3").`

	IngestHTMLDescription = `Build question records from a saved exam blog page in the input directory.

**When to use:** Exam posts where correct answers and explanations are marked with colored text.

**Why it's useful:** Colored spans are bound to the nearest preceding question number in document order, so answers hidden in color are recovered even when the text has no "정답" label. The HTML is kept for later artifact passes.

**Examples:**
• doc_id="blog-17", path="blog-17.html", base_url="https://blog.example.com/17"

**Common workflows:**
1. exam_ingest_html → exam_extract_artifacts → exam_merge → exam_validate

**Best practices:** Pass base_url so relative image links resolve to absolute URLs.`

	IngestURLDescription = `Fetch an exam page over HTTP(S) and build question records from it.

**When to use:** The exam is published on a web page and has not been saved locally.

**Why it's useful:** Same as exam_ingest_html, with the fetched URL used as the base for image links. Fetches are bounded by a timeout and a size cap.

**Examples:**
• doc_id="blog-42", url="https://blog.example.com/posts/42"

**Best practices:** A fetch failure leaves any earlier records of the document untouched.`

	// Artifact and Merge Tools
	ExtractArtifactsDescription = `Collect code blocks, images and tables from a document's stored HTML into side-files.

**When to use:** After ingesting an HTML page or URL, before merging.

**Why it's useful:** Each artifact is attached to the question whose number precedes it in the page. Code blocks get a detected language, tiny or decorative images are dropped, layout tables are skipped. Only the requested kinds are rerun; other side-files stay as they are.

**Examples:**
• All kinds: doc_id="blog-17"
• Images only: doc_id="blog-17", kinds="image"

**Best practices:** Enable image downloading in the server configuration to keep local copies under the document's images directory.`

	MergeDescription = `Fold artifact side-files into the document's question records.

**When to use:** After exam_extract_artifacts, or after editing a side-file by hand.

**Why it's useful:** A non-empty side-file entry replaces the record's field; an empty one never erases a populated field. Merging twice gives the same records.

**Examples:**
• doc_id="blog-17"`

	// Quality Tools
	ValidateDescription = `Check a document's records for missing answers, images, choices and explanations.

**When to use:** After ingest or merge, to find records that need a human look.

**Why it's useful:** Each finding carries a priority (1 most actionable): a figure question without an image is P1, a missing or inconsistent answer is P2, short text and missing choices are P3.

**Examples:**
• doc_id="info-2023-1"

**Best practices:** Validation never changes records. Rerun after fixing a document to refresh its issue list.`

	ReportDescription = `Aggregate counts and issues over documents and write a report file.

**When to use:** To see coverage of answers, explanations and choices and the list of open issues.

**Why it's useful:** Gives per-document and total percentages, artifact counts and issues grouped by priority and type. The report can be written as JSON or as an XLSX workbook with Summary and Issues sheets.

**Examples:**
• All documents as JSON: (no arguments)
• Two documents as a workbook: doc_ids="info-2023-1,blog-17", format="xlsx"`

	GetRecordsDescription = `Return the stored question records of a document as JSON.

**When to use:** To inspect what was extracted, for example after a low confidence count or a validator finding.

**Examples:**
• Whole document: doc_id="blog-17"
• One question: doc_id="blog-17", q_no="Q007"`

	ListDocumentsDescription = `List the documents that have question records in the data directory.`

	ServerInfoDescription = `Get server information, configuration, stored documents and the recommended tool order.

**When to use:** First call in a session, to learn which documents exist and how the stages fit together.`
)
