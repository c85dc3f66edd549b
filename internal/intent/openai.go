package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"catatwarung/backend/internal/domain"
)

const promptTemplate = `Kamu adalah asisten pembukuan warung kelontong di Indonesia.
Ubah ucapan pemilik warung berikut menjadi satu catatan terstruktur.
Aturan:
1. type: sale (jual), purchase (beli/kulakan), debt_add (ngutang/kasbon), debt_payment (bayar utang), stock_add (tambah/kurangi stok tanpa transaksi), price_update (ganti harga).
2. Semua nominal dalam rupiah, hanya angka tanpa titik (contoh "15000"). Kosongkan jika tidak disebut.
3. Jangan menebak harga yang tidak diucapkan.
4. Satuan tulis apa adanya (dus, pak, pcs, kg, liter, ...).
5. Isi stock.units_per_pack jika disebut isi per dus/pak.

Ucapan: %s`

type OpenAIInterpreter struct {
	client *openai.Client
	model  string
	schema map[string]any
}

func NewOpenAIInterpreter(apiKey string, model string, opts ...option.RequestOption) (*OpenAIInterpreter, error) {
	if model == "" {
		model = string(shared.ChatModelGPT4o)
	}
	schema, err := generateSchema()
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}, opts...)...)
	return &OpenAIInterpreter{client: &client, model: model, schema: schema}, nil
}

func (o *OpenAIInterpreter) Interpret(ctx context.Context, text string) (domain.ParsedIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ParsedIntent{}, ErrEmptyText
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(fmt.Sprintf(promptTemplate, text)),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "warung_intent",
					Strict:      param.NewOpt(true),
					Schema:      o.schema,
					Description: param.NewOpt("One bookkeeping event spoken by a shop owner"),
				},
			},
		},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("openai responses error: %w", err)
	}
	content := resp.OutputText()
	if content == "" {
		return domain.ParsedIntent{}, fmt.Errorf("empty response content")
	}

	var raw modelIntent
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("failed to parse completion: %w", err)
	}
	parsed, err := raw.toParsedIntent(text)
	if err != nil {
		return domain.ParsedIntent{}, err
	}
	Normalize(&parsed, text)
	return parsed, nil
}

func generateSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(modelIntent{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
