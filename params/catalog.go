package params

import "github.com/dife-bioinformatics/mekewe/types"

// InputFileParam is the engine-level file parameter every run must
// populate. It is always a file list regardless of how the engine
// declares it.
const InputFileParam = "input_file_path"

// globalDescriptors are the engine constructor parameters shared by all
// methods. Output-folder naming is engine-adapter internal and not part
// of the public surface.
var globalDescriptors = []Descriptor{
	{Name: InputFileParam, Type: TypeFile, IsList: true, Required: true,
		Description: "Input file or list of input files (Excel format)."},
	{Name: "sheet_name_paths", Type: TypeStr, Required: true, Default: "pathways",
		Description: "Sheet name containing the pathway information (see docs). Has to apply to all input files in case of multiple."},
	{Name: "sheet_name_genes", Type: TypeStr, Required: true, Default: "gene_metrics",
		Description: "Sheet name for gene information (see docs). Has to apply to all input files in case of multiple."},
	{Name: "genes_column", Type: TypeStr, Required: true, Default: "gene_symbol",
		Description: "Column name for gene symbols in the sheet_name_genes"},
	{Name: "log2fc_column", Type: TypeStr, Required: true, Default: "logFC",
		Description: "Column name for log2fc values in the sheet_name_genes"},
	{Name: "input_label", Type: TypeStr, IsList: true,
		Description: "Input label or list of labels for multiple inputs"},
	{Name: "count_threshold", Type: TypeInt, Default: 2,
		Description: "Minimum number of genes per pathway, for pathway to be drawn."},
	{Name: "pathway_pvalue", Type: TypeFloat,
		Description: "Raw p-value threshold for the pathways"},
	{Name: "benjamini_threshold", Type: TypeFloat,
		Description: "Benjamini Hochberg p-value threshold for the pathway"},
	{Name: "save_to_eps", Type: TypeBool, Default: false,
		Description: "True/False statement to save the maps and colorscales or legends as seperate .eps files in addition to the .pdf exports"},
	{Name: "compounds_list", Type: TypeStr, IsList: true,
		Description: "List of compound IDs to mapped in pathways if found."},
}

// Method-specific parameter groups, shared between related methods.
var (
	methylationParams = []Descriptor{
		{Name: "methylation_path", Type: TypeFile, Required: true,
			Description: "Path to methylation data (Excel , CSV or TSV format)"},
		{Name: "methylation_genes", Type: TypeStr, Required: true,
			Description: "Column name for methylation gene symbols"},
		{Name: "methylation_pvalue", Type: TypeStr,
			Description: "Column name for methylation p-value"},
		{Name: "methylation_pvalue_thresh", Type: TypeFloat, Default: 0.05,
			Description: "P-value threshold for the methylation values"},
	}

	methylationQuantParams = []Descriptor{
		{Name: "methylation_probe_column", Type: TypeStr, Required: true,
			Description: "Column name for the methylation probes."},
		{Name: "probes_to_cgs", Type: TypeBool, Default: false,
			Description: "If True, will correct the probes to positions, delete duplicated positions and keep the first CG."},
	}

	mirnaParams = []Descriptor{
		{Name: "miRNA_path", Type: TypeFile, Required: true,
			Description: "Path to miRNA data (Excel , CSV or TSV format)"},
		{Name: "miRNA_genes", Type: TypeStr, Required: true,
			Description: "Column name for miRNA gene symbols"},
		{Name: "miRNA_pvalue", Type: TypeStr,
			Description: "Column name for miRNA p-value"},
		{Name: "miRNA_pvalue_thresh", Type: TypeFloat, Default: 0.05,
			Description: "P-value threshold for the miRNA values"},
	}

	mirnaQuantParams = []Descriptor{
		{Name: "miRNA_ID_column", Type: TypeStr, Required: true,
			Description: "Column name for the miRNA IDs."},
	}
)

// Method couples a catalog entry with its method-specific descriptors.
type Method struct {
	types.AnalysisMethod
	Params []Descriptor
}

// methods is the declarative catalog of the nine analysis methods.
var methods = []Method{
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_genes", DisplayName: "Gene expression", InternalID: 1,
			Desc: "Perform the Single Input Analysis for Gene IDs."},
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_transcripts", DisplayName: "Transcript expression", InternalID: 2,
			Desc: "Perform the Single Input Analysis for Transcript IDs."},
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_genes_bulk_mapping", DisplayName: "Bulk RNAseq mapping", InternalID: 3,
			Desc: "Perform a single input analysis with bulk mapping for genes."},
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "multiple_inputs", DisplayName: "Multiple inputs", InternalID: 4,
			Desc: "Perform the Multiple Inputs Analysis."},
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_with_methylation", DisplayName: "Methylated genes", InternalID: 5,
			Desc: "Perform Single Input Analysis with Methylation."},
		Params: methylationParams,
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_with_methylation_quantification", DisplayName: "DMPs per gene", InternalID: 6,
			Desc: "Perform Single Input Analysis with methylation quantification."},
		Params: concat(methylationParams, methylationQuantParams),
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_with_miRNA", DisplayName: "miRNA target genes", InternalID: 7,
			Desc: "Perform Single Input Analysis with miRNA."},
		Params: mirnaParams,
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_with_miRNA_quantification", DisplayName: "DEmiRs per gene", InternalID: 8,
			Desc: "Perform Single Input Analysis with miRNA quantification."},
		Params: concat(mirnaParams, mirnaQuantParams),
	},
	{
		AnalysisMethod: types.AnalysisMethod{Name: "single_input_with_methylation_and_miRNA", DisplayName: "Methylated + miRNA target genes", InternalID: 9,
			Desc: "Perform Single Input Analysis with Methylation and miRNA."},
		Params: concat(methylationParams, mirnaParams),
	},
}

func concat(groups ...[]Descriptor) []Descriptor {
	var out []Descriptor
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Methods returns the catalog entries in internal-id order.
func Methods() []types.AnalysisMethod {
	out := make([]types.AnalysisMethod, 0, len(methods))
	for _, m := range methods {
		out = append(out, m.AnalysisMethod)
	}
	return out
}

// FindMethod returns the catalog entry for name, or nil if unknown.
func FindMethod(name string) *Method {
	for i := range methods {
		if methods[i].Name == name {
			return &methods[i]
		}
	}
	return nil
}

// GlobalDescriptors returns the engine-level parameter descriptors.
func GlobalDescriptors() []Descriptor {
	out := make([]Descriptor, len(globalDescriptors))
	copy(out, globalDescriptors)
	return out
}

// MethodDescriptors returns the method-specific descriptors for name,
// or nil if the method is unknown.
func MethodDescriptors(name string) []Descriptor {
	m := FindMethod(name)
	if m == nil {
		return nil
	}
	out := make([]Descriptor, len(m.Params))
	copy(out, m.Params)
	return out
}

// Find scans the globals, then every method's parameters, for a
// descriptor with the given name. Returns nil if absent.
func Find(name string) *Descriptor {
	for i := range globalDescriptors {
		if globalDescriptors[i].Name == name {
			d := globalDescriptors[i]
			return &d
		}
	}
	for _, m := range methods {
		for i := range m.Params {
			if m.Params[i].Name == name {
				d := m.Params[i]
				return &d
			}
		}
	}
	return nil
}

// IsGlobal reports whether name is an engine-level parameter.
func IsGlobal(name string) bool {
	for i := range globalDescriptors {
		if globalDescriptors[i].Name == name {
			return true
		}
	}
	return false
}
